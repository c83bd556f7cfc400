package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"volunteer-hub/config"
)

var (
	ErrNoRecipients   = errors.New("邮件缺少收件人")
	ErrInvalidAddress = errors.New("邮件地址无效")
)

// Message 待发送邮件
type Message struct {
	To      []string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
	Tags    map[string]string // 写入 X-Tag-* 头，便于投递侧统计
}

// Mailer 邮件发送接口
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New 根据配置创建 Mailer：配置了 SMTP 主机时走 SMTP，否则只写日志
func New(cfg *config.MailConfig, logger *zap.Logger) Mailer {
	if cfg.SMTPHost == "" {
		logger.Warn("未配置 SMTP，邮件仅记录日志")
		return &LogMailer{logger: logger}
	}
	return &SMTPMailer{cfg: *cfg}
}

// ── SMTP 实现 ──

// SMTPMailer 基于 go-mail 的 SMTP 发送实现
type SMTPMailer struct {
	cfg config.MailConfig
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	gm, err := newMsg(m.cfg.From, msg, time.Now())
	if err != nil {
		return err
	}

	opts := []gomail.Option{
		gomail.WithPort(m.cfg.SMTPPort),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(30 * time.Second),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}
	client, err := gomail.NewClient(m.cfg.SMTPHost, opts...)
	if err != nil {
		return fmt.Errorf("创建 SMTP 客户端失败: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, gm); err != nil {
		return fmt.Errorf("SMTP 发送失败: %w", err)
	}
	return nil
}

// ── 日志实现 ──

// LogMailer 开发环境使用，只记录邮件摘要
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer 创建日志 Mailer
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	m.logger.Info("邮件（未实际发送）",
		zap.Strings("to", msg.To),
		zap.String("reply_to", msg.ReplyTo),
		zap.String("subject", msg.Subject),
		zap.Any("tags", msg.Tags),
	)
	return nil
}

// Compose 生成 multipart/alternative 格式的报文，正文使用 quoted-printable 编码
func Compose(from string, msg Message, now time.Time) ([]byte, error) {
	gm, err := newMsg(from, msg, now)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := gm.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("构建邮件正文失败: %w", err)
	}
	return buf.Bytes(), nil
}

// newMsg 构建 go-mail 报文
// 地址逐个解析，含 CR/LF 等非法字符的地址直接拒绝；其余头部值按 RFC 2047 编码
func newMsg(from string, msg Message, now time.Time) (*gomail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, ErrNoRecipients
	}
	gm := gomail.NewMsg()
	if err := gm.From(from); err != nil {
		return nil, fmt.Errorf("%w: from: %v", ErrInvalidAddress, err)
	}
	if err := gm.To(msg.To...); err != nil {
		return nil, fmt.Errorf("%w: to: %v", ErrInvalidAddress, err)
	}
	if msg.ReplyTo != "" {
		if err := gm.ReplyTo(msg.ReplyTo); err != nil {
			return nil, fmt.Errorf("%w: reply-to: %v", ErrInvalidAddress, err)
		}
	}
	gm.Subject(stripLineBreaks(msg.Subject))
	gm.SetDateWithValue(now)
	gm.SetMessageID()
	for k, v := range msg.Tags {
		gm.SetGenHeader(gomail.Header("X-Tag-"+textproto.CanonicalMIMEHeaderKey(stripLineBreaks(k))), stripLineBreaks(v))
	}

	switch {
	case msg.Text != "" && msg.HTML != "":
		gm.SetBodyString(gomail.TypeTextPlain, msg.Text)
		gm.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		gm.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	default:
		gm.SetBodyString(gomail.TypeTextPlain, msg.Text)
	}
	return gm, nil
}

func stripLineBreaks(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
