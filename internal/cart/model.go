package cart

// Item is one product entry in the cart together with its purchasable
// quantity. Quantity is at least 1 while the item exists; a mutation that
// would drop it to 0 removes the item instead.
type Item struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	ImageURL string  `json:"image_url,omitempty"`
	Stock    int     `json:"stock"`
	Quantity int     `json:"quantity"`
}

// Product is the catalog descriptor accepted by AddItem. The fields are
// trusted as-is; the catalog owns validation.
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	ImageURL string  `json:"image_url,omitempty"`
	Stock    int     `json:"stock"`
}

func (p Product) asItem() Item {
	return Item{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		ImageURL: p.ImageURL,
		Stock:    p.Stock,
		Quantity: 1,
	}
}
