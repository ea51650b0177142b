package model

// Market はお土産を扱う市場を表す。
type Market struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`
	Image       string `json:"image,omitempty"`
}

// Merchant は市場に出店する販売者を表す。
type Merchant struct {
	ID          string `json:"id"`
	MarketID    string `json:"market_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
}

// Category はお土産のカテゴリを表す。
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Product は販売者が出品するお土産を表す。
type Product struct {
	ID          string  `json:"id"`
	MerchantID  string  `json:"merchant_id"`
	CategoryID  string  `json:"category_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	Image       string  `json:"image,omitempty"`
}

// Review は商品レビューを表す。
type Review struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	UserID    string `json:"user_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

// CartItem はカート内の1明細を表す。
type CartItem struct {
	ProductID string   `json:"product_id"`
	Quantity  int      `json:"quantity"`
	Product   *Product `json:"product,omitempty"`
}

// Cart はユーザーのショッピングカートを表す。
type Cart struct {
	ID     string     `json:"id"`
	UserID string     `json:"user_id"`
	Items  []CartItem `json:"items"`
	Total  float64    `json:"total"`
}

// Order はチェックアウトで確定した注文を表す。
type Order struct {
	ID     string     `json:"id"`
	UserID string     `json:"user_id"`
	Items  []CartItem `json:"items"`
	Total  float64    `json:"total"`
	Status string     `json:"status"`
}
