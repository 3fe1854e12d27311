package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"dmchat/internal/domain"
	"dmchat/internal/service"
)

var ErrUnauthorized = errors.New("unauthorized")

// API habla con el servidor por HTTP usando un access token.
type API struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewAPI(baseURL, accessToken string) *API {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   accessToken,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Image es un adjunto a subir junto al mensaje.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// Login obtiene un par de tokens y deja el access token configurado.
func (a *API) Login(ctx context.Context, email, password string) (domain.User, error) {
	var out struct {
		User   domain.User       `json:"user"`
		Tokens service.TokenPair `json:"tokens"`
	}
	err := a.doJSON(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return domain.User{}, err
	}
	a.token = out.Tokens.AccessToken
	return out.User, nil
}

func (a *API) Conversations(ctx context.Context) (service.ConversationsResult, error) {
	var out service.ConversationsResult
	err := a.doJSON(ctx, http.MethodGet, "/messages/conversations", nil, &out)
	return out, err
}

func (a *API) History(ctx context.Context, partnerID string) ([]domain.HistoryEntry, error) {
	var out struct {
		Success  bool                  `json:"success"`
		Messages []domain.HistoryEntry `json:"messages"`
	}
	if err := a.doJSON(ctx, http.MethodGet, "/messages/history/"+url.PathEscape(partnerID), nil, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, errors.New("history unavailable")
	}
	return out.Messages, nil
}

func (a *API) Partner(ctx context.Context, partnerID string) (domain.PartnerHeader, error) {
	var out struct {
		Success bool                 `json:"success"`
		Partner domain.PartnerHeader `json:"partner"`
	}
	if err := a.doJSON(ctx, http.MethodGet, "/messages/partners/"+url.PathEscape(partnerID), nil, &out); err != nil {
		return domain.PartnerHeader{}, err
	}
	return out.Partner, nil
}

// Send envía texto y, opcionalmente, una imagen. Un rechazo de validación
// llega como SendResult con Success=false, no como error.
func (a *API) Send(ctx context.Context, receiverID, content string, img *Image) (service.SendResult, error) {
	var out service.SendResult
	if img == nil {
		err := a.doJSON(ctx, http.MethodPost, "/messages", map[string]string{"receiverId": receiverID, "content": content}, &out)
		return out, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("receiverId", receiverID)
	_ = w.WriteField("content", content)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, img.Name))
	h.Set("Content-Type", img.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return out, fmt.Errorf("create part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return out, fmt.Errorf("write part: %w", err)
	}
	if err := w.Close(); err != nil {
		return out, fmt.Errorf("close multipart: %w", err)
	}
	err = a.do(ctx, http.MethodPost, "/messages", w.FormDataContentType(), &buf, &out)
	return out, err
}

func (a *API) Typing(ctx context.Context, receiverID string) error {
	return a.doJSON(ctx, http.MethodPost, "/messages/typing", map[string]string{"receiverId": receiverID}, nil)
}

// WebsocketURL arma la URL del canal en vivo con el token en la query.
func (a *API) WebsocketURL() string {
	base := a.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws?access_token=" + url.QueryEscape(a.token)
}

func (a *API) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
		contentType = "application/json"
	}
	return a.do(ctx, method, path, contentType, reader, out)
}

func (a *API) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("http error: status=%d", resp.StatusCode)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
