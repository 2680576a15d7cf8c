package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/example/swirly-orders/internal/domain/order"
)

// Service sends order emails via SMTP
type Service struct {
	host string
	port string
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
		send: smtp.SendMail,
		now:  time.Now,
	}
}

// SendOrderConfirmation sends the "order placed" email.
func (s *Service) SendOrderConfirmation(to, orderID string, total float64, items []order.LineItem) error {
	subject := fmt.Sprintf("Order confirmed: %s", orderID)
	return s.mail(to, subject, BuildOrderConfirmationBody(orderID, total, items))
}

// SendStatusUpdate tells the customer their order reached status.
func (s *Service) SendStatusUpdate(to, orderID string, status order.Status) error {
	subject := fmt.Sprintf("%s: %s", orderID, status.Label())
	return s.mail(to, subject, BuildStatusUpdateBody(orderID, status, s.now()))
}

func (s *Service) mail(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.send(addr, nil, s.from, []string{to}, []byte(msg))
}
