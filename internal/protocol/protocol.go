package protocol

const Version = "1.1"

// BasePath is the prefix of every player API route.
const BasePath = "/api/v1.1"

// Envelope wraps every player API result. Updates is null for routes that do not report
// sequence changes and an object (possibly empty) for those that do.
type Envelope struct {
	Result            any            `json:"result"`
	Updates           map[string]int `json:"updates"`
	Expiration        *string        `json:"expiration"`
	ContinuationToken *string        `json:"continuationToken"`
}
