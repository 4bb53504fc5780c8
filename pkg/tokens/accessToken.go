package tokens

// AccessClaimsFromToken verifies an access token and rejects any other token type.
func AccessClaimsFromToken(TokenStr string, AccessSecret []byte) (*AccessClaims, error) {
	var claims AccessClaims
	if err := Verify(TokenStr, AccessSecret, &claims); err != nil {
		return nil, err
	}
	if err := RequireType(claims.TokenType, TypeAccess); err != nil {
		return nil, err
	}
	return &claims, nil
}
