package models

import "time"

// Role определяет роль пользователя на площадке
type Role string

const (
	RoleCustomer Role = "customer"
	RoleFarmer   Role = "farmer"
)

// Valid сообщает, известна ли роль
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleFarmer
}

// User представляет пользователя: покупателя или фермера
type User struct {
	ID        int64
	Email     string
	PassHash  []byte
	FirstName string
	LastName  string
	Address   string // адрес доставки по умолчанию, меняется в профиле
	Role      Role
	CreatedAt time.Time
}

// Actor: аутентифицированная личность, от имени которой выполняется операция
type Actor struct {
	ID   int64
	Role Role
}

func (a Actor) IsFarmer() bool   { return a.Role == RoleFarmer }
func (a Actor) IsCustomer() bool { return a.Role == RoleCustomer }
