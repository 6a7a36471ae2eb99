package mw

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"dicom-annotations/constants"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var GIN_CONTEXT_AUTHINFO = "AuthInfo"

// ParsePublicKey accepts a PEM block or the bare base64 body of one.
func ParsePublicKey(keyData string) (*rsa.PublicKey, error) {
	if !strings.Contains(keyData, "BEGIN PUBLIC KEY") {
		keyData = fmt.Sprintf("-----BEGIN PUBLIC KEY-----\n%s\n-----END PUBLIC KEY-----", keyData)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(keyData))
	if err != nil {
		return nil, errors.Wrap(err, "parse RSA public key")
	}
	return key, nil
}

// ParseJWTAccessToken verifies an RS256 token against key and returns the
// account it was issued to. Expired tokens are rejected.
func ParseJWTAccessToken(key *rsa.PublicKey, token string) (*Account, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodRS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("The token is invalid")
	}

	var authClaim AuthClaim
	b, _ := json.Marshal(claims)
	if err := json.Unmarshal(b, &authClaim); err != nil {
		return nil, err
	}
	return authClaim.ConvertAuthClaimToAccount(), nil
}

// WrapAuthInfo rejects requests without a valid bearer token and stores the
// caller's account in the gin context.
func WrapAuthInfo(key *rsa.PublicKey, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(constants.ParamAuth)
		if authHeader == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		splitted := strings.Split(authHeader, " ")
		if len(splitted) != 2 || splitted[0] != "Bearer" {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}

		account, err := ParseJWTAccessToken(key, splitted[1])
		if err != nil {
			logger.Debug("token rejected", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			c.Abort()
			return
		}

		c.Set(GIN_CONTEXT_AUTHINFO, account)
		c.Next()
	}
}

func GetAuthInfoFromGin(c *gin.Context) *Account {
	if inf, exists := c.Get(GIN_CONTEXT_AUTHINFO); exists {
		if account, ok := inf.(*Account); ok {
			return account
		}
	}
	return nil
}
