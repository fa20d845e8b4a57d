// Пакет model — доменные модели Admin Module.
package model

// RequestStatus — статус заявки на кровь.
type RequestStatus string

// Статусы жизненного цикла заявки.
// Pending — начальное состояние; Accepted и Rejected — терминальные
// (повторная модерация в рамках этого модуля не определена, кроме
// пути повторного принятия отклонённой заявки).
const (
	StatusPending  RequestStatus = "Pending"
	StatusAccepted RequestStatus = "Accepted"
	StatusRejected RequestStatus = "Rejected"
)

// IsTerminal возвращает true для терминальных статусов.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// ParseRequestStatus преобразует строку в RequestStatus.
// Возвращает false, если строка не является известным статусом.
func ParseRequestStatus(s string) (RequestStatus, bool) {
	switch RequestStatus(s) {
	case StatusPending, StatusAccepted, StatusRejected:
		return RequestStatus(s), true
	}
	return "", false
}

// Request — заявка на кровь из Blood Service.
// Не хранится локально — формируется из ответа GET /bloodrequest/getAllRequest.
// JSON-теги соответствуют wire-формату Blood Service.
type Request struct {
	// ID — уникальный идентификатор заявки
	ID string `json:"id"`
	// BloodTypeID — идентификатор группы крови
	BloodTypeID string `json:"bloodTypeId"`
	// Quantity — количество единиц крови (положительное)
	Quantity int `json:"quantity"`
	// RequestDate — дата подачи заявки
	RequestDate string `json:"request_date"`
	// RequiredBy — дата, к которой нужна кровь
	RequiredBy string `json:"required_by"`
	// Status — текущий статус (Pending, Accepted, Rejected)
	Status RequestStatus `json:"status"`
	// DeliveryAddress — адрес доставки
	DeliveryAddress string `json:"delivery_address"`
	// ContactNumber — контактный телефон
	ContactNumber string `json:"contact_number"`
	// ReasonForRequest — причина запроса
	ReasonForRequest string `json:"reason_for_request"`
	// HospitalName — название больницы
	HospitalName string `json:"hospital_name"`
	// Urgent — срочность (null, если не указана)
	Urgent *bool `json:"urgent"`
	// IsAccepted — флаг принятия (null до модерации)
	IsAccepted *bool `json:"isAccepted"`
	// IsQrSent — отправлен ли QR-код заявителю
	IsQrSent *bool `json:"isQrSent"`
	// IsMailSent — отправлено ли письмо заявителю
	IsMailSent *bool `json:"isMailSent"`
	// IsApproved — флаг одобрения (null до модерации)
	IsApproved *bool `json:"isApproved"`
	// OwnerUserID — идентификатор пользователя, создавшего заявку.
	// Нужен для аудита принятия/отклонения.
	OwnerUserID string `json:"userId"`
}
