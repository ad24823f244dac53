package domain

// CartSnapshot is a read-only view of the user's cart, owned by the cart
// service. The checkout flow never mutates it; the only side effect is a
// single clear issued after a successful order.
type CartSnapshot struct {
	Items []CartItem `json:"items"`
}

// CartItem is a single line in the cart snapshot.
type CartItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Image     string `json:"image,omitempty"`
}

// Subtotal computes the cart subtotal (unit price times quantity per line).
func (c *CartSnapshot) Subtotal() int64 {
	var subtotal int64
	for _, item := range c.Items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}
	return subtotal
}

// ItemCount returns the total quantity across all lines.
func (c *CartSnapshot) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// IsEmpty reports whether the snapshot has no lines.
func (c *CartSnapshot) IsEmpty() bool {
	return len(c.Items) == 0
}
