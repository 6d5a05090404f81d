package protocol

import "strings"

// Free-text fields travel inside %-delimited frames, so the client must
// escape every byte that would break tokenization before a message is
// embedded in a payload. The entity names are fixed by the server; &145;
// in particular is not standard HTML.
var chatEncoder = strings.NewReplacer(
	"%", "&percnt;",
	`"`, "&quot;",
	"'", "&145;",
	"\n", "<br />",
	`\`, "%5C",
)

var chatDecoder = strings.NewReplacer(
	"%5C", `\`,
	"<br />", "\n",
	"&145;", "'",
	"&quot;", `"`,
	"&percnt;", "%",
)

// EncodeChatText escapes free text for embedding in an extension payload.
func EncodeChatText(s string) string {
	return chatEncoder.Replace(s)
}

// DecodeChatText reverses EncodeChatText on inbound chat content.
func DecodeChatText(s string) string {
	return chatDecoder.Replace(s)
}
