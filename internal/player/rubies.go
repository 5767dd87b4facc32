package player

import (
	"context"
	"fmt"
)

type Balance struct {
	Purchased int `json:"purchased"`
	Earned    int `json:"earned"`
}

func (b Balance) Total() int { return b.Purchased + b.Earned }

type Rubies struct {
	doc    Doc
	userID string
}

func (r *Rubies) Get(ctx context.Context) (Balance, error) {
	var b Balance
	if _, err := r.doc.Get(ctx, collection, r.userID, "rubies", &b); err != nil {
		return Balance{}, err
	}
	return b, nil
}

func (r *Rubies) AddPurchased(ctx context.Context, n int) error {
	return r.add(ctx, "rubies.purchased", n)
}

func (r *Rubies) AddEarned(ctx context.Context, n int) error {
	return r.add(ctx, "rubies.earned", n)
}

func (r *Rubies) add(ctx context.Context, path string, n int) error {
	if n <= 0 {
		return fmt.Errorf("rubies: non-positive amount %d", n)
	}
	_, err := r.doc.Increment(ctx, collection, r.userID, path, int64(n))
	return err
}

// Spend debits n rubies, purchased ones first. It reports false when the balance is too low.
func (r *Rubies) Spend(ctx context.Context, n int) (bool, error) {
	if n < 0 {
		return false, fmt.Errorf("rubies: negative amount %d", n)
	}
	b, err := r.Get(ctx)
	if err != nil {
		return false, err
	}
	if n > b.Total() {
		return false, nil
	}
	if n == 0 {
		return true, nil
	}
	fromPurchased := min(n, b.Purchased)
	b.Purchased -= fromPurchased
	b.Earned -= n - fromPurchased
	return true, r.doc.Set(ctx, collection, r.userID, "rubies", b)
}
