// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package attempt

import (
	"net/url"
	"strings"
)

// DefaultReturnTo is where a user lands after login when no valid return
// path was recorded.
const DefaultReturnTo = "/"

// SafeReturnTo returns p when it's a local, absolute path and DefaultReturnTo
// otherwise.  Scheme relative ("//host") and backslash tricks are rejected,
// so the post login redirect never leaves the application.
func SafeReturnTo(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") {
		return DefaultReturnTo
	}
	if strings.HasPrefix(p, "//") || strings.ContainsAny(p, "\\\r\n\t") {
		return DefaultReturnTo
	}
	u, err := url.Parse(p)
	if err != nil || u.IsAbs() || u.Host != "" || u.User != nil {
		return DefaultReturnTo
	}
	return p
}
