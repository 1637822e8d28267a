// Command tokengen mints session tokens signed with PORTAL_MFA_JWT_SECRET,
// for calling the /me/mfa routes during development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ninjaportal/portal-mfa/pkg/config"
	"github.com/ninjaportal/portal-mfa/pkg/mfa"
	"github.com/ninjaportal/portal-mfa/pkg/tokengenerator"
)

func main() {
	actorID := flag.String("actor", "", "Actor ID placed in the sub claim (required)")
	actorType := flag.String("type", mfa.ContextConsumer, "Actor type: consumer or admin")
	email := flag.String("email", "", "Actor email")
	tokenContext := flag.String("context", "", "Auth context claim (defaults to the actor type)")
	outputFormat := flag.String("format", "compact", "Output format: compact, full, or debug")
	flag.Parse()

	if *actorID == "" {
		fmt.Fprintln(os.Stderr, "Error: -actor is required")
		flag.Usage()
		os.Exit(2)
	}

	var jwtConfig config.JwtConfig
	if err := cleanenv.ReadEnv(&jwtConfig); err != nil {
		slog.Error("Failed to read JWT configuration", "err", err)
		os.Exit(1)
	}

	ctxName := *tokenContext
	if ctxName == "" {
		ctxName = *actorType
	}

	actor := mfa.Actor{Type: mfa.NormalizeContext(*actorType), ID: *actorID, Email: *email}
	payload, err := jwtConfig.NewIssuer().IssueTokens(context.Background(), actor, ctxName)
	if err != nil {
		slog.Error("Failed to generate token", "err", err)
		fmt.Fprintf(os.Stderr, "Error: Failed to generate token: %v\n", err)
		os.Exit(1)
	}
	access, _ := payload[tokengenerator.ACCESS_TOKEN_NAME].(string)

	switch *outputFormat {
	case "compact":
		fmt.Println(access)
	case "full":
		out, _ := json.MarshalIndent(payload, "", "  ")
		fmt.Println(string(out))
	case "debug":
		gen := tokengenerator.NewJwtTokenGenerator(jwtConfig.Secret, jwtConfig.Issuer, jwtConfig.Audience)
		claims, err := gen.ParseToken(access)
		if err != nil {
			slog.Error("Failed to parse generated token", "err", err)
			fmt.Fprintf(os.Stderr, "Error: Failed to parse generated token: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("=== Token Information ===\n")
		fmt.Printf("Token: %s\n\n", access)
		fmt.Printf("=== Token Claims ===\n")
		claimsJSON, _ := json.MarshalIndent(claims, "", "  ")
		fmt.Printf("%s\n\n", claimsJSON)
		fmt.Printf("Expires: %v\n", payload["expires_at"])
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown output format: %s\n", *outputFormat)
		os.Exit(1)
	}
}
