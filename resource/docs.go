// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package resource is a resource server that trusts bearer access tokens
// issued by the identity provider.  /protected-resource validates the JWT
// with a jwt.Validator and answers with the caller's identity; /health
// reports liveness.  Every response is JSON.
package resource
