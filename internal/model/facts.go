package model

// UserFact is the body of user_created and user_updated.
type UserFact struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// UserDeletedFact is the body of user_deleted.
type UserDeletedFact struct {
	ID string `json:"id"`
}

// ProductFact is the body of product_created.
type ProductFact struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

func NewUserFact(u *User) UserFact {
	return UserFact{ID: u.ID, Name: u.Name, Role: u.Role}
}

func NewProductFact(p *Product) ProductFact {
	return ProductFact{ID: p.ID, Name: p.Name, Price: p.Price, Quantity: p.AvailableQuantity}
}
