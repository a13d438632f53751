package announcer

import (
	"fmt"
	"strconv"
	"strings"

	redis_models "github.com/brandonscholten/capstone-spring-2025/models/redis"
	"github.com/brandonscholten/capstone-spring-2025/services/gateway"
	"github.com/brandonscholten/capstone-spring-2025/utils"
)

// Announcement field labels. Start and end render as separate fields so
// either can be recovered on its own.
const (
	FieldDate      = "Date"
	FieldStart     = "Start"
	FieldEnd       = "End"
	FieldCapacity  = "Capacity"
	FieldPlayers   = "Players"
	FieldAttending = "Attending"
	FieldPrice     = "Price"

	// The session id rides on a field whose label is a zero-width space,
	// invisible in every client but recoverable from the raw embed.
	FieldHiddenID = "​"
)

// Embed colors per session kind
const (
	colorGame  = 0x2ecc71
	colorEvent = 0x3498db
)

const (
	zeroBit = '​' // zero-width space
	oneBit  = '‌' // zero-width non-joiner
)

// EncodeHiddenID encodes an opaque session id into zero-width characters.
func EncodeHiddenID(sessionID string) string {
	var b strings.Builder
	for _, by := range []byte(sessionID) {
		for bit := 7; bit >= 0; bit-- {
			if by&(1<<bit) != 0 {
				b.WriteRune(oneBit)
			} else {
				b.WriteRune(zeroBit)
			}
		}
	}
	return b.String()
}

// DecodeHiddenID recovers a session id from its zero-width encoding.
func DecodeHiddenID(encoded string) (string, error) {
	var bits []byte
	for _, r := range encoded {
		switch r {
		case zeroBit:
			bits = append(bits, 0)
		case oneBit:
			bits = append(bits, 1)
		default:
			return "", fmt.Errorf("unexpected rune %q in hidden id field", r)
		}
	}
	if len(bits) == 0 || len(bits)%8 != 0 {
		return "", fmt.Errorf("hidden id field has %d bits, not a whole byte count", len(bits))
	}

	out := make([]byte, 0, len(bits)/8)
	for i := 0; i < len(bits); i += 8 {
		var by byte
		for _, bit := range bits[i : i+8] {
			by = by<<1 | bit
		}
		out = append(out, by)
	}
	return string(out), nil
}

// BuildEmbed renders a session into its announcement embed. The roster and
// attending-count fields are projections of the registry entry; they are
// refreshed after every roster mutation but never read back for decisions.
func BuildEmbed(session *redis_models.Session) (gateway.Embed, error) {
	date, err := utils.DisplayDate(session.StartTime)
	if err != nil {
		return gateway.Embed{}, err
	}
	start, err := utils.DisplayClock(session.StartTime)
	if err != nil {
		return gateway.Embed{}, err
	}
	end, err := utils.DisplayClock(session.EndTime)
	if err != nil {
		return gateway.Embed{}, err
	}

	color := colorEvent
	if session.IsGame() {
		color = colorGame
	}

	embed := gateway.Embed{
		Title:       session.Title,
		Description: session.Description,
		Color:       color,
		Image:       session.ImageURL,
		Fields: []gateway.EmbedField{
			{Name: FieldDate, Value: date, Inline: true},
			{Name: FieldStart, Value: start, Inline: true},
			{Name: FieldEnd, Value: end, Inline: true},
		},
	}

	if session.IsGame() {
		embed.Fields = append(embed.Fields,
			gateway.EmbedField{Name: FieldCapacity, Value: strconv.Itoa(session.Capacity), Inline: true})
	}
	if session.Price != "" {
		embed.Fields = append(embed.Fields,
			gateway.EmbedField{Name: FieldPrice, Value: session.Price, Inline: true})
	}

	embed.Fields = append(embed.Fields,
		gateway.EmbedField{Name: FieldPlayers, Value: rosterLine(session)},
		gateway.EmbedField{Name: FieldAttending, Value: strconv.Itoa(len(session.Roster)), Inline: true},
		gateway.EmbedField{Name: FieldHiddenID, Value: EncodeHiddenID(session.Id)},
	)

	return embed, nil
}

func rosterLine(session *redis_models.Session) string {
	if len(session.Roster) == 0 {
		return "-"
	}
	return strings.Join(session.Roster, ", ")
}

// SessionIDFromEmbed recovers the session id embedded in an announcement.
// Used as the fallback read path when the registry has no entry for the
// message; a decode failure is fatal to the operation at hand.
func SessionIDFromEmbed(embed gateway.Embed) (string, error) {
	encoded, ok := embed.Field(FieldHiddenID)
	if !ok {
		return "", fmt.Errorf("announcement has no hidden id field")
	}
	return DecodeHiddenID(encoded)
}
