package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
)

func TestReserveOrder(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want []int
	}{
		{name: "empty", want: []int{}},
		{name: "sorted", ids: []string{"A", "B", "C"}, want: []int{0, 1, 2}},
		{name: "reversed", ids: []string{"C", "B", "A"}, want: []int{2, 1, 0}},
		{name: "duplicates keep cart order", ids: []string{"B", "A", "B", "A"}, want: []int{1, 3, 0, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := make([]cart.Line, len(tt.ids))
			for i, id := range tt.ids {
				lines[i] = cart.Line{ProductID: id, Quantity: 1}
			}
			assert.Equal(t, tt.want, reserveOrder(lines))
		})
	}
}
