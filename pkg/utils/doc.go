// Package utils holds small stateless helpers shared by the MFA packages:
// email masking for client payloads, timestamp formatting and pointers.
//
// # Masking
//
//	utils.MaskEmail("jane@example.com") // "j**e@example.com"
//	utils.MaskEmail("jo@example.com")   // "j*@example.com"
//	utils.MaskEmail("broken")           // "***"
package utils
