package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"dmchat/internal/client"
	"dmchat/internal/config"
	"dmchat/internal/domain"
)

const helpText = `Comandos:
  /list               conversaciones recientes
  /open <userId>      abrir chat (máx. 3 abiertos)
  /close <userId>     cerrar chat
  /windows            ver chats abiertos
  /img <path> [texto] enviar imagen al chat enfocado
  /quit               salir
Cualquier otra línea se envía al chat enfocado.`

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reader := bufio.NewReader(os.Stdin)
	api := client.NewAPI(cfg.APIBaseURL, "")

	email := prompt(reader, "email: ")
	password := prompt(reader, "password: ")
	me, err := api.Login(ctx, email, password)
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	fmt.Printf("Hola %s\n%s\n", me.DisplayName(), helpText)

	session := client.NewSession(api, client.Handlers{
		OnAlert: func(reason string) { fmt.Printf("! %s\n", reason) },
		OnMessage: func(p domain.DeliveryPayload, rendered bool) {
			if rendered {
				fmt.Printf("[%s] %s: %s\n", p.Time, p.SenderID, p.Content)
				return
			}
			fmt.Printf("* nuevo mensaje de %s (/open %s)\n", p.SenderID, p.SenderID)
		},
		OnTyping: func(senderID string) { fmt.Printf("… %s está escribiendo\n", senderID) },
		OnConnState: func(connected bool) {
			if !connected {
				fmt.Println("* desconectado, reintentando")
			}
		},
	}, logger)

	go func() {
		if err := session.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Printf("! canal en vivo detenido: %v\n", err)
		}
	}()

	for ctx.Err() == nil {
		line := prompt(reader, "> ")
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			sendText(ctx, session, line)
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "/quit":
			return
		case "/list":
			listConversations(ctx, api)
		case "/open":
			if err := session.Open(ctx, arg); err != nil {
				fmt.Printf("! no se pudo cargar el historial: %v\n", err)
			}
			printWindow(session, arg)
		case "/close":
			session.Windows().Close(arg)
		case "/windows":
			fmt.Printf("abiertos: %v (foco: %s)\n", session.Windows().IDs(), session.Windows().Focused())
		case "/img":
			path, text, _ := strings.Cut(arg, " ")
			sendImage(ctx, session, path, text)
		default:
			fmt.Println(helpText)
		}
	}
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}

func listConversations(ctx context.Context, api *client.API) {
	res, err := api.Conversations(ctx)
	if err != nil || !res.Success {
		fmt.Println("! no se pudieron cargar las conversaciones")
		return
	}
	if len(res.Conversations) == 0 {
		fmt.Println("(sin conversaciones)")
	}
	for _, c := range res.Conversations {
		mark := " "
		if c.Unread {
			mark = "•"
		}
		fmt.Printf("%s %-12s %-20s %-12s %s\n", mark, c.UserID, c.Name, c.TimeAgo, c.LastMessage)
	}
}

func printWindow(session *client.Session, partnerID string) {
	w, ok := session.Windows().Snapshot(partnerID)
	if !ok {
		return
	}
	fmt.Printf("== %s ==\n", w.Header.Name)
	for _, b := range w.Bubbles {
		who := w.Header.Name
		if b.Own {
			who = "yo"
		}
		fmt.Printf("[%s] %s: %s\n", b.Time, who, b.Content)
	}
}

func sendText(ctx context.Context, session *client.Session, text string) {
	partner := session.Windows().Focused()
	if partner == "" {
		fmt.Println("! abrí un chat con /open")
		return
	}
	_, _ = session.Send(ctx, partner, text, nil)
}

func sendImage(ctx context.Context, session *client.Session, path, text string) {
	partner := session.Windows().Focused()
	if partner == "" {
		fmt.Println("! abrí un chat con /open")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("! %v\n", err)
		return
	}
	img := &client.Image{
		Name:        filepath.Base(path),
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}
	_, _ = session.Send(ctx, partner, text, img)
}
