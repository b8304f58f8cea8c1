// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package jwt validates bearer access tokens presented to the resource server.

A Validator verifies a token's signature with one or more KeySets and then
checks its registered claims against Expected.  KeySets come in three forms:

  - NewOIDCDiscoveryKeySet finds the JWKS through an issuer's discovery
    document.
  - NewJSONWebKeySet fetches keys from a JWKS URL directly.
  - NewStaticKeySet uses local PEM encoded public keys.

Remote key sets are cached and refetched when a token is signed by a key
that isn't cached, so signing key rotation is picked up without a restart.
A remote key set that can't be fetched is reported as ErrKeySetUnavailable,
which callers can tell apart from a token that is simply invalid.
*/
package jwt
