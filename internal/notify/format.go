package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// FormatEvent renders an event as a notification title and body.
func FormatEvent(e domain.Event) (title, message string) {
	var b strings.Builder
	switch e.Name {
	case domain.EventTokenCreated:
		title = fmt.Sprintf("Token #%d minted", e.TokenID)
		fmt.Fprintf(&b, "creator: %s\nuri: %s", e.Actor.Hex(), e.Detail)
	case domain.EventListingUpdated:
		title = fmt.Sprintf("Token #%d listed", e.TokenID)
		fmt.Fprintf(&b, "owner: %s\nprice: %s ETH", e.Actor.Hex(), domain.FormatEther(e.Amount))
	case domain.EventItemSold:
		title = fmt.Sprintf("Token #%d sold", e.TokenID)
		fmt.Fprintf(&b, "seller: %s\nbuyer: %s\nprice: %s ETH",
			e.Counterparty.Hex(), e.Actor.Hex(), domain.FormatEther(e.Amount))
	case domain.EventItemLiked, domain.EventItemDisliked:
		verb := "liked"
		if e.Name == domain.EventItemDisliked {
			verb = "disliked"
		}
		title = fmt.Sprintf("Token #%d %s", e.TokenID, verb)
		fmt.Fprintf(&b, "by: %s", e.Actor.Hex())
	case domain.EventWithdrawal:
		title = "Withdrawal"
		fmt.Fprintf(&b, "account: %s\namount: %s ETH", e.Actor.Hex(), domain.FormatEther(e.Amount))
	default:
		title = string(e.Name)
		fmt.Fprintf(&b, "actor: %s", e.Actor.Hex())
		if e.Detail != "" {
			fmt.Fprintf(&b, "\n%s", e.Detail)
		}
	}
	return title, b.String()
}
