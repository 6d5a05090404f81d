package session

// loginPayload assembles the lli credential document. The constant
// fields mimic the browser client closely enough for the server to
// accept the session; LT must serialize as JSON null.
func loginPayload(username, password string) map[string]any {
	return map[string]any{
		"CONM":  175,
		"RTM":   24,
		"ID":    0,
		"PL":    1,
		"NOM":   username,
		"PW":    password,
		"LT":    nil,
		"LANG":  "en",
		"DID":   "0",
		"AID":   "1745592024940879420",
		"KID":   "",
		"REF":   "https://empire.goodgamestudios.com",
		"GCI":   "",
		"SID":   9,
		"PLFID": 1,
	}
}
