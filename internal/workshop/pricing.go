package workshop

// Price is the cost in rubies of finishing a session immediately. ChangesAt is the remaining time
// in seconds below which the next lower price applies.
type Price struct {
	Price     int
	ChangesAt int
}

// PriceToFinish charges 5 rubies per started 10 seconds of remaining time.
func PriceToFinish(remainingSeconds int) Price {
	if remainingSeconds <= 0 {
		return Price{}
	}
	brackets := (remainingSeconds + 9) / 10
	return Price{
		Price:     brackets * 5,
		ChangesAt: max((brackets-1)*10, 0),
	}
}

// RemainingSeconds rounds the time until totalCompletion up to whole seconds. It is negative once
// completion has passed by at least a second.
func RemainingSeconds(totalCompletion, now int64) int {
	return int(ceilDiv(totalCompletion-now, 1000))
}

// ceilDiv rounds a/b towards positive infinity. b must be positive.
func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && a > 0 {
		q++
	}
	return q
}
