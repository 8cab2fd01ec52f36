package address

import "errors"

var (
	ErrNotFound = errors.New("address not found")
	ErrInvalid  = errors.New("invalid address")
)

// Address is the postal address attached to profiles, orders and payments.
// The contact fields are only sent with checkout addresses.
type Address struct {
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      string `json:"phone,omitempty"`
	HouseName  string `json:"houseName" validate:"required"`
	StreetArea string `json:"streetArea" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	Country    string `json:"country" validate:"required"`
	Pincode    string `json:"pincode" validate:"required"`
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// Entry is one saved address in a user's address book.
type Entry struct {
	AddressID int    `json:"addressId"`
	UserID    int    `json:"userId"`
	Name      string `json:"addressName"`
	Address
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}
