package model

import (
	"encoding/json"
	"time"
)

// Product is a stock-keeping unit as seen by one service.
type Product struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Price             int64  `json:"price"`
	AvailableQuantity int64  `json:"available_quantity"`
}

type Order struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"user_id"`
	TotalQuantity int64     `json:"total_quantity"`
	CreatedAt     time.Time `json:"created_at"`
}

// OrderItem references its product by id only.
type OrderItem struct {
	ID        int64 `json:"id"`
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// UserReplica is the local, read-only shadow of an identity record.
type UserReplica struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// User is the authoritative identity record, owned by the identity service.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// OutboxEvent is a fact waiting to be published.
type OutboxEvent struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	Key         string          `json:"key"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	Attempts    int             `json:"attempts"`
}

// OrderItemDetail is an item with its product resolved for display.
type OrderItemDetail struct {
	ID          int64  `json:"id"`
	OrderID     int64  `json:"order_id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
	Price       int64  `json:"price"`
}

// OrderDetail is an order with its items and buyer name resolved.
type OrderDetail struct {
	ID            int64             `json:"id"`
	ClientID      string            `json:"client_id"`
	ClientName    string            `json:"client_name"`
	TotalQuantity int64             `json:"total_quantity"`
	CreatedAt     time.Time         `json:"created_at"`
	Items         []OrderItemDetail `json:"items"`
}

type OrderPage struct {
	Orders []OrderDetail `json:"orders"`
	Total  int64         `json:"total"`
}
