// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package strutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrListContains(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	scopes := []string{"openid", "profile", "email"}
	assert.True(StrListContains(scopes, "openid"))
	assert.False(StrListContains(scopes, "offline_access"))
	assert.False(StrListContains(nil, "openid"))

	audiences := []string{"flask-app", "account"}
	assert.True(StrListContainsAny(audiences, "resource-api", "account"))
	assert.False(StrListContainsAny(audiences, "resource-api"))
	assert.False(StrListContainsAny(audiences))
}

func TestRemoveDuplicatesStable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name            string
		in              []string
		caseInsensitive bool
		want            []string
	}{
		{name: "empty", in: []string{}, want: []string{}},
		{name: "openid-first", in: []string{"openid", "profile", "openid", "email"}, want: []string{"openid", "profile", "email"}},
		{name: "blank-dropped", in: []string{"openid", " ", ""}, want: []string{"openid"}},
		{name: "trimmed-compare", in: []string{"email", " email "}, want: []string{"email"}},
		{name: "case-kept", in: []string{"Profile", "profile"}, want: []string{"Profile", "profile"}},
		{name: "case-folded", in: []string{"Profile", "profile"}, caseInsensitive: true, want: []string{"Profile"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, RemoveDuplicatesStable(tt.in, tt.caseInsensitive))
		})
	}
}
