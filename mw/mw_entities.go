package mw

import (
	"encoding/json"
)

type AuthClaim struct {
	Exp         int64  `json:"exp"`
	Iat         int64  `json:"iat"`
	Iss         string `json:"iss"`
	Sub         string `json:"sub"`
	Azp         string `json:"azp"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	Scope             string `json:"scope"`
	PreferredUsername string `json:"preferred_username"`
}

type Account struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	ExpTime  int64    `json:"exp_time"`
}

func (object *Account) String() string {
	b, _ := json.Marshal(object)
	return string(b)
}

func (object *AuthClaim) String() string {
	b, _ := json.Marshal(object)
	return string(b)
}

func (authClaim *AuthClaim) ConvertAuthClaimToAccount() *Account {
	return &Account{
		ID:       authClaim.Sub,
		Username: authClaim.PreferredUsername,
		Roles:    authClaim.RealmAccess.Roles,
		ExpTime:  authClaim.Exp,
	}
}
