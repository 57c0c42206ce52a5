package model

import "errors"

// Виды ошибок, которые видит вызывающая сторона. Конкретная причина добавляется через %w.
var (
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation error")
	// ErrStateConflict возвращается, если переход недопустим из текущего статуса,
	// выполняется не тем участником или проиграл гонку с другим переходом.
	ErrStateConflict = errors.New("state conflict")
	// ErrCapacity возвращается при попытке отключить доступность с активными заказами.
	ErrCapacity = errors.New("capacity error")
	// ErrNotFound возвращается, если заказ, пользователь, квартира или кондоминиум не найдены.
	ErrNotFound = errors.New("not found")
	// ErrForbidden возвращается, если пользователь не участвует в заказе.
	ErrForbidden = errors.New("forbidden")
	// ErrUserExists возвращается при попытке зарегистрировать существующий email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials возвращается при неверном пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
