package tokens

// RefreshClaimsFromToken verifies a refresh token and rejects any other token type.
func RefreshClaimsFromToken(TokenStr string, RefreshSecret []byte) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := Verify(TokenStr, RefreshSecret, &claims); err != nil {
		return nil, err
	}
	if err := RequireType(claims.TokenType, TypeRefresh); err != nil {
		return nil, err
	}
	return &claims, nil
}
