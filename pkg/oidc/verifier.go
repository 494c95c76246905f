package oidc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the verified ID token claims the controller maps to a principal.
type Claims struct {
	Issuer   string
	Subject  string
	Audience []string
	Email    string
	Username string
	Nonce    string
	TokenUse string
	Expiry   time.Time
}

// Verifier validates ID tokens for one configured provider. Cheap structural
// and claim checks run before any network traffic; the signing key is only
// resolved once the token already names the right issuer, audience and type.
type Verifier struct {
	issuer   string
	clientID string
	jwksURL  string
	resolver *KeyResolver
	now      func() time.Time
}

// NewVerifier creates an ID token verifier for a provider.
func NewVerifier(issuer, clientID, jwksURL string, resolver *KeyResolver) *Verifier {
	return &Verifier{
		issuer:   issuer,
		clientID: clientID,
		jwksURL:  jwksURL,
		resolver: resolver,
		now:      time.Now,
	}
}

// Verify validates the raw ID token and returns its claims.
//
// Order matters: the header and claims are decoded without trusting the
// signature, and type, issuer, audience and expiry are checked first so an
// obviously bogus token never costs a key fetch. Then the signing key is
// resolved by kid; an unknown kid invalidates the provider's cached key set
// and re-fetches exactly once to cover rotation races. Finally the signature
// is verified and the nonce compared against the value bound at login.
func (v *Verifier) Verify(ctx context.Context, rawToken, expectedNonce string) (*Claims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, authErr(KindClaimInvalid, "malformed token", err)
	}

	if alg, _ := unverified.Header["alg"].(string); alg != "RS256" {
		return nil, authErr(KindClaimInvalid, fmt.Sprintf("unexpected signing algorithm %q", alg), nil)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, authErr(KindClaimInvalid, "token header missing kid", nil)
	}

	claims, err := v.checkClaims(unverified.Claims.(jwt.MapClaims))
	if err != nil {
		return nil, err
	}

	key, err := v.resolver.Key(ctx, v.jwksURL, kid)
	if errors.Is(err, ErrKeyNotFound) {
		// Rotation race: the provider may have published a new key since the
		// set was cached. One re-fetch, then give up.
		v.resolver.Invalidate(v.jwksURL)
		key, err = v.resolver.Key(ctx, v.jwksURL, kid)
	}
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, authErr(KindSignatureInvalid, "no signing key for token", err)
		}
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.Parse(rawToken, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}); err != nil {
		return nil, authErr(KindSignatureInvalid, "signature verification failed", err)
	}

	if claims.Nonce != expectedNonce {
		return nil, authErr(KindClaimInvalid, "nonce mismatch", nil)
	}

	return claims, nil
}

// checkClaims validates everything that does not need the signature. The
// offending values are carried in the error message for the security log;
// the raw token never is.
func (v *Verifier) checkClaims(mc jwt.MapClaims) (*Claims, error) {
	claims := &Claims{}

	if use, _ := mc["token_use"].(string); use != "" && use != "id" {
		return nil, authErr(KindClaimInvalid, fmt.Sprintf("token_use %q is not an identity token", use), nil)
	} else {
		claims.TokenUse = use
	}

	issuer, err := mc.GetIssuer()
	if err != nil || issuer != v.issuer {
		return nil, authErr(KindClaimInvalid, fmt.Sprintf("issuer %q does not match provider", issuer), nil)
	}
	claims.Issuer = issuer

	audience, err := mc.GetAudience()
	if err != nil {
		return nil, authErr(KindClaimInvalid, "audience claim missing", err)
	}
	if !containsAudience(audience, v.clientID) {
		return nil, authErr(KindClaimInvalid, fmt.Sprintf("audience %v does not include client", []string(audience)), nil)
	}
	claims.Audience = audience

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, authErr(KindClaimInvalid, "expiry claim missing", err)
	}
	if !exp.Time.After(v.now()) {
		return nil, authErr(KindClaimInvalid, "token expired", nil)
	}
	claims.Expiry = exp.Time

	claims.Subject, _ = mc["sub"].(string)
	if claims.Subject == "" {
		return nil, authErr(KindClaimInvalid, "subject claim missing", nil)
	}

	claims.Email, _ = mc["email"].(string)
	claims.Nonce, _ = mc["nonce"].(string)
	if claims.Username, _ = mc["preferred_username"].(string); claims.Username == "" {
		claims.Username, _ = mc["cognito:username"].(string)
	}

	return claims, nil
}

func containsAudience(audience jwt.ClaimStrings, clientID string) bool {
	for _, aud := range audience {
		if aud == clientID {
			return true
		}
	}
	return false
}
