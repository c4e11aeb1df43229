package orders

import (
	"regexp"
	"strconv"
)

// CRM descriptions carry the order reference as free text, e.g.
// "Web Order #42 from alice@example.com" or "Order #42".
var orderRefPattern = regexp.MustCompile(`(Web )?Order #(\d+)`)

// ExtractOrderID pulls the first order id out of free text. Returns false when
// no reference is present; callers treat such messages as unprocessable.
func ExtractOrderID(text string) (int64, bool) {
	m := orderRefPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}

	id, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		// digits long enough to overflow int64 are not a real order id
		return 0, false
	}
	return id, true
}
