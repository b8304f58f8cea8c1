// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
oidc is a package for relying parties that sign users in with an OIDC
provider using the authorization code flow with PKCE.

# Primary types provided by the package

* Attempt: represents one in-flight authorization code flow for a user.  It
carries the state, nonce and PKCE verifier generated for the flow and the
local path to return to.  All Attempts contain an expiration.

* TokenSet: the access_token, id_token and refresh_token returned by the
provider.  Every token type redacts itself when printed or marshaled.

* Claims: the verified identity claims of an id_token.

* Config: provides the configuration for the provider (client ID/secret,
public and internal issuer, redirect URL, supported signing algorithms,
scopes, timeouts, etc).

* Provider: provides integration with the provider. It generates auth URLs,
exchanges codes for tokens, verifies id_tokens, makes userinfo requests,
refreshes tokens and builds end-session URLs.  Transient provider failures
are retried once and then reported as ErrProviderUnreachable.

* Alg: represents asymmetric signing algorithms

* TestProvider: an in-process provider for tests.
*/
package oidc
