// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package handler is the web application's HTTP surface.  It orchestrates the
authorization code flow between the browser, the identity provider and the
attempt and session managers; it holds no state of its own.

Routes:

	GET  /                     index, reports whether the browser is logged in
	GET  /login                starts a login attempt and redirects to the provider
	GET  /callback             completes the attempt and creates a session
	GET  /profile              the session's claims and userinfo (protected)
	GET  /token                the decoded access_token and id_token claims (protected)
	GET  /logout, POST /logout destroys the session and redirects to the provider's end-session endpoint
	GET  /call-protected-api   calls the resource server with the access_token (protected, optional)

Protected routes answer HTML for browsers and JSON for API clients; see
middleware.IsAPIRequest.  Callback failures never create a session and are
reported with a generic message, the specific reason is only logged.
*/
package handler
