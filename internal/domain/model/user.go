package model

// User — пользователь Blood Service.
// Не хранится локально — формируется из ответа POST /acceptRequest/getAllUser.
type User struct {
	// ID — идентификатор пользователя
	ID string `json:"id"`
	// Email — адрес электронной почты
	Email string `json:"email"`
	// Username — имя пользователя
	Username string `json:"username"`
	// CreatedAt — дата регистрации
	CreatedAt string `json:"createdAt"`
	// Role — роль (User, Admin)
	Role string `json:"role"`
}
