package request

// registerDefaults wires the parsers for responses that have a stable
// shape worth typing. Everything else resolves to the raw packet so
// callers can inspect the payload themselves.
func registerDefaults(r *Registry) {
	r.Register("hgh", parseRankingPage)
	r.Register("llsp", parseRankingPage)
	r.Register("acl", parseChatLog)
	r.Register("aha", parseHelpOverview)
}
