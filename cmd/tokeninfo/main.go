// tokeninfo prints what the client would read out of an access token:
// well-formedness, claims and the refresh decision. Useful when a session
// misbehaves and the token is the suspect.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"wayfare.org/internal/token"
)

func main() {
	raw := ""
	if len(os.Args) > 1 {
		raw = os.Args[1]
	} else {
		raw = os.Getenv("WAYFARE_TOKEN")
	}
	if raw == "" {
		log.Fatalf("usage: tokeninfo <jwt> (or set WAYFARE_TOKEN)")
	}

	if err := token.WellFormed(raw); err != nil {
		log.Fatalf("token is not usable: %v", err)
	}
	fmt.Printf("length: %d (ceiling %d)\n", len(raw), token.MaxEncodedLength)

	claims, err := token.Decode(raw)
	if err != nil {
		log.Fatalf("decode claims: %v", err)
	}
	p := claims.Principal()
	fmt.Printf("subject: %s\n", p.ID)
	if p.Role != "" {
		fmt.Printf("role: %s\n", p.Role)
	}
	if claims.IssuedAt != nil {
		fmt.Printf("issued: %s\n", claims.IssuedAt.Time.Format(time.RFC3339))
	}
	if claims.ExpiresAt != nil {
		fmt.Printf("expires: %s (in %s)\n",
			claims.ExpiresAt.Time.Format(time.RFC3339),
			time.Until(claims.ExpiresAt.Time).Round(time.Second))
	} else {
		fmt.Println("expires: no expiry claim")
	}

	if token.IsExpiringSoon(raw, time.Now()) {
		fmt.Printf("refresh: due (within %s of expiry)\n", token.ExpirySlack)
	} else {
		fmt.Println("refresh: not yet")
	}
}
