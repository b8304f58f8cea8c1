// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/oidc-webapp/oidc"
)

func Example() {
	// Create a new Config
	pc, err := oidc.NewConfig(
		"http://localhost:8080/realms/myrealm",
		"your_client_id",
		"your_client_secret",
		[]oidc.Alg{oidc.RS256},
		"http://localhost:5000/callback",
		oidc.WithInternalIssuer("http://keycloak:8080/realms/myrealm"),
		oidc.WithScopes("profile", "email"),
	)
	if err != nil {
		// handle error
	}

	// Create a provider
	p, err := oidc.NewProvider(pc)
	if err != nil {
		// handle error
	}
	defer p.Done()

	// Create an Attempt for a user's authentication attempt. Store it where
	// the callback can find it by its State.
	attempt, err := oidc.NewAttempt(10*time.Minute, oidc.WithReturnTo("/profile"))
	if err != nil {
		// handle error
	}

	// Create an auth URL
	authURL, err := p.AuthURL(context.Background(), attempt)
	if err != nil {
		// handle error
	}
	fmt.Println("open url to kick-off authentication: ", authURL)

	// Create a http.Handler for OIDC authentication response redirects
	callbackHandler := func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		tokens, claims, err := p.Exchange(r.Context(), attempt, q.Get("state"), q.Get("code"))
		switch {
		case errors.Is(err, oidc.ErrProviderUnreachable):
			http.Error(w, "identity provider unavailable", http.StatusServiceUnavailable)
			return
		case err != nil:
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		// Get the user's claims via the provider's UserInfo endpoint
		info, err := p.UserInfo(r.Context(), tokens.AccessToken, claims.Subject)
		if err != nil {
			// fall back to the id_token claims
		}
		fmt.Println(claims.Username(), info)
	}
	http.HandleFunc("/callback", callbackHandler)
}

func ExampleNewConfig() {
	pc, err := oidc.NewConfig(
		"http://your-issuer.com/",
		"your_client_id",
		"your_client_secret",
		[]oidc.Alg{oidc.RS256},
		"http://your_redirect_url/callback",
	)
	if err != nil {
		// handle error
	}
	fmt.Println(pc.Scopes)
	// Output:
	// [openid]
}

func ExampleNewAttempt() {
	attempt, err := oidc.NewAttempt(10 * time.Minute)
	if err != nil {
		// handle error
	}
	fmt.Println(attempt.State != attempt.Nonce, len(attempt.Verifier))
	// Output:
	// true 43
}

func ExampleTokenSet() {
	tokens := oidc.TokenSet{
		AccessToken:  "access",
		IDToken:      "id",
		RefreshToken: "refresh",
	}
	fmt.Println(tokens.AccessToken)
	fmt.Println(tokens.IDToken)
	fmt.Println(tokens.RefreshToken)
	// Output:
	// [REDACTED: access_token]
	// [REDACTED: id_token]
	// [REDACTED: refresh_token]
}
