package deals

type (
	// Deal is a single listing as returned by the deal source. ID is the canonical link and the
	// only part of a deal that is ever persisted.
	Deal struct {
		ID            string  `json:"id"`
		Title         string  `json:"title"`
		Price         *string `json:"price,omitempty"`
		NextBestPrice *string `json:"next_best_price,omitempty"`
		Merchant      string  `json:"merchant"`
		Temperature   int     `json:"temperature"`
		VoucherCode   *string `json:"voucher_code,omitempty"`
		ImageURL      *string `json:"image_url,omitempty"`
	}

	SearchInput struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
		Sort  string `json:"sort"`
	}

	SearchOutput struct {
		Deals []*Deal `json:"deals"`
	}

	ByCategoryInput struct {
		Slug  string `json:"slug"`
		Limit int    `json:"limit"`
	}

	ByCategoryOutput struct {
		Deals []*Deal `json:"deals"`
	}

	// listing is the wire representation of a deal.
	listing struct {
		Link          string  `json:"link"`
		Title         string  `json:"title"`
		Price         *string `json:"price"`
		NextBestPrice *string `json:"next_best_price"`
		Merchant      string  `json:"merchant"`
		Temperature   int     `json:"temperature"`
		VoucherCode   *string `json:"voucher_code"`
		ImageURL      *string `json:"image_url"`
	}

	listingResponse struct {
		Deals []*listing `json:"deals"`
	}
)

const SortNew = "new"

func (l *listing) deal() *Deal {
	return &Deal{
		ID:            l.Link,
		Title:         l.Title,
		Price:         l.Price,
		NextBestPrice: l.NextBestPrice,
		Merchant:      l.Merchant,
		Temperature:   l.Temperature,
		VoucherCode:   l.VoucherCode,
		ImageURL:      l.ImageURL,
	}
}
