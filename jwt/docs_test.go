// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/hashicorp/oidc-webapp/jwt"
)

// A resource server validating a bearer access token issued by a Keycloak
// realm, finding the realm's keys through discovery.
func ExampleValidator_Validate() {
	ctx := context.Background()

	keySet, err := jwt.NewOIDCDiscoveryKeySet(ctx, "https://keycloak.example.com/realms/demo", "")
	if err != nil {
		log.Fatal(err)
	}
	v, err := jwt.NewValidatorWithOptions([]jwt.KeySet{keySet}, []jwt.Option{jwt.WithNormalizedAudiences()})
	if err != nil {
		log.Fatal(err)
	}

	authorization := "Bearer your_access_token"
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok {
		log.Fatal("not a bearer token")
	}
	claims, err := v.Validate(ctx, token, jwt.Expected{
		Issuer:            "https://keycloak.example.com/realms/demo",
		Audiences:         []string{"flask-app"},
		SigningAlgorithms: []jwt.Alg{jwt.RS256},
	})
	switch {
	case errors.Is(err, jwt.ErrKeySetUnavailable):
		log.Fatal("provider keys unavailable: ", err)
	case err != nil:
		log.Fatal("rejected: ", err)
	}
	fmt.Println(claims["sub"], claims["preferred_username"])
}

// Fetching keys from a JWKS URL reached over the internal network while
// tokens carry the public issuer.
func ExampleNewJSONWebKeySet() {
	ctx := context.Background()

	keySet, err := jwt.NewJSONWebKeySet(ctx, "http://keycloak:8080/realms/demo/protocol/openid-connect/certs", "")
	if err != nil {
		log.Fatal(err)
	}
	v, err := jwt.NewValidator(keySet)
	if err != nil {
		log.Fatal(err)
	}
	claims, err := v.Validate(ctx, "your_access_token", jwt.Expected{
		Issuer: "http://localhost:8080/realms/demo",
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(claims["sub"])
}

func ExampleNewStaticKeySet() {
	ctx := context.Background()

	keySet, err := jwt.NewStaticKeySet([]string{"your_pem_encoded_public_key"})
	if err != nil {
		log.Fatal(err)
	}
	claims, err := keySet.VerifySignature(ctx, "your_access_token")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(claims["sub"])
}
