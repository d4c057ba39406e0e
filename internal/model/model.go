// Package model содержит доменные сущности сервиса заказов.
package model

import "time"

// User представляет учётную запись сотрудника или администратора.
type User struct {
	ID           int64
	Email        string
	PasswordHash []byte
	FirstName    string
	LastName     string
	PhoneNumber  string
	Roles        []string
	BalanceKobo  int64
	CreatedAt    time.Time
}

// IsAdmin сообщает, есть ли у пользователя роль администратора.
func (u *User) IsAdmin() bool {
	for _, r := range u.Roles {
		if r == "Admin" {
			return true
		}
	}
	return false
}

// OrderStatus описывает стадию обработки заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ValidOrderStatus проверяет принадлежность значения к перечислению статусов.
func ValidOrderStatus(s string) bool {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusPreparing, OrderStatusReady,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// DeliveryType описывает способ получения заказа.
type DeliveryType string

const (
	DeliveryTypePickup   DeliveryType = "pickup"
	DeliveryTypeDelivery DeliveryType = "delivery"
)

// Buyer — снимок данных покупателя на момент оформления заказа.
// Не является ссылкой на учётную запись.
type Buyer struct {
	FullName     string `json:"fullName"`
	PhoneNumber  string `json:"phoneNumber"`
	EmailAddress string `json:"emailAddress"`
}

// Delivery описывает параметры получения заказа.
type Delivery struct {
	Type    DeliveryType `json:"type"`
	Address string       `json:"address"`
	FeeNGN  int64        `json:"fee"`
}

// OrderItem — позиция заказа. Цена в позиции не хранится,
// итоговая сумма фиксируется в заказе целиком.
type OrderItem struct {
	ProductID int64 `json:"product"`
	Quantity  int   `json:"quantity"`
}

// Order описывает подтверждённый заказ.
type Order struct {
	ID                int64       `json:"id"`
	Number            string      `json:"orderNumber"`
	Buyer             Buyer       `json:"buyer"`
	Items             []OrderItem `json:"items"`
	TotalPriceNGN     int64       `json:"totalPrice"`
	Delivery          Delivery    `json:"delivery"`
	PaymentOnDelivery bool        `json:"paymentOnDelivery"`
	PaymentSettled    bool        `json:"paymentSettled"`
	Status            OrderStatus `json:"status"`
	IsScheduled       bool        `json:"isScheduled"`
	ScheduledDate     string      `json:"scheduledDate,omitempty"`
	ScheduledTime     string      `json:"scheduledTime,omitempty"`
	CreatedAt         time.Time   `json:"createdAt"`
}

// ProductStatus описывает состояние остатка товара.
type ProductStatus string

const (
	ProductStatusInStock  ProductStatus = "instock"
	ProductStatusLowStock ProductStatus = "low stock"
	ProductStatusCritical ProductStatus = "critical"
)

// Product — позиция каталога. Название уникально в пределах каталога.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	PriceNGN    int64     `json:"price"`
	Stock       int       `json:"stock"`
	MinStock    int       `json:"minStock"`
	MinOrder    int       `json:"minOrder"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// StockStatus выводит состояние остатка из stock и minStock.
func (p *Product) StockStatus() ProductStatus {
	switch {
	case p.Stock <= 0:
		return ProductStatusCritical
	case p.Stock <= p.MinStock:
		return ProductStatusLowStock
	default:
		return ProductStatusInStock
	}
}

// Balance содержит баланс счёта и сумму последнего зачисления в найрах.
type Balance struct {
	Balance         float64 `json:"balance"`
	DepositedAmount float64 `json:"depositedAmount"`
}
