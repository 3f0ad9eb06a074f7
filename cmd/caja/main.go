// Command caja is the staff counter terminal. It logs in against the
// backend, shows the three sale partitions and applies confirm, payment and
// pickup actions, re-fetching after every mutation.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"viandas/backend/internal/board"
	"viandas/backend/internal/client"
	"viandas/backend/internal/domain"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("could not read .env: %v", err)
	}

	addr := flag.String("addr", envOr("CAJA_ADDR", "http://localhost:8080"), "backend base URL")
	email := flag.String("email", os.Getenv("CAJA_EMAIL"), "staff email")
	password := flag.String("password", os.Getenv("CAJA_PASSWORD"), "staff password")
	flag.Parse()

	if *email == "" || *password == "" {
		log.Fatal("email and password are required (-email/-password or CAJA_EMAIL/CAJA_PASSWORD)")
	}

	ctx := context.Background()

	c := client.New(*addr, client.AuthContext{})
	login, err := c.Login(ctx, *email, *password)
	if err != nil {
		log.Fatalf("login failed: %s", errorMessage(err))
	}
	c = c.WithAuth(client.AuthContext{Token: login.AccessToken})

	b := board.New(c)
	if err := b.Refresh(ctx); err != nil {
		log.Printf("initial refresh failed: %s", errorMessage(err))
	}
	printBoard(b.Snapshot())

	repl(ctx, b)
}

func repl(ctx context.Context, b *board.Board) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println(`commands: list | date YYYY-MM-DD | confirm <id> | pagado <id> | retiro <id> | venta <id>x<cant> [<id>x<cant> ...] | quit`)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return
		case "list":
			if err := b.Refresh(ctx); err != nil {
				fmt.Println(errorMessage(err))
			}
			printBoard(b.Snapshot())
		case "date":
			if len(fields) != 2 {
				fmt.Println("usage: date YYYY-MM-DD")
				continue
			}
			if err := b.SetSelectedDate(ctx, fields[1]); err != nil {
				fmt.Println(errorMessage(err))
			}
			printBoard(b.Snapshot())
		case "confirm", "pagado", "retiro":
			runAction(ctx, b, fields)
		case "venta":
			runManualSale(ctx, b, fields[1:])
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}

func runAction(ctx context.Context, b *board.Board, fields []string) {
	if len(fields) != 2 {
		fmt.Printf("usage: %s <id>\n", fields[0])
		return
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		fmt.Printf("invalid sale id %q\n", fields[1])
		return
	}

	actions := map[string]board.Action{
		"confirm": board.ActionConfirm,
		"pagado":  board.ActionMarkPaid,
		"retiro":  board.ActionRegisterPickup,
	}
	if err := b.Perform(ctx, actions[fields[0]], id); err != nil {
		fmt.Println(errorMessage(err))
	}
	printBoard(b.Snapshot())
}

func runManualSale(ctx context.Context, b *board.Board, args []string) {
	var (
		lines []client.LineItem
		medio string
	)
	for _, arg := range args {
		if arg == domain.PaymentCash || arg == domain.PaymentTransfer {
			medio = arg
			continue
		}
		line, err := parseLine(arg)
		if err != nil {
			fmt.Println(err)
			return
		}
		lines = append(lines, line)
	}

	sale, err := b.CreateManualSale(ctx, client.SaleDraft{MedioPago: medio, Lines: lines})
	if err != nil {
		fmt.Println(errorMessage(err))
		return
	}
	fmt.Printf("venta #%d registrada: %s\n", sale.ID, saleTotal(sale))
	printBoard(b.Snapshot())
}

// parseLine reads "<productID>x<cantidad>", e.g. "3x2".
func parseLine(arg string) (client.LineItem, error) {
	parts := strings.SplitN(arg, "x", 2)
	if len(parts) != 2 {
		return client.LineItem{}, fmt.Errorf("invalid line %q, expected <id>x<cantidad>", arg)
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return client.LineItem{}, fmt.Errorf("invalid product id %q", parts[0])
	}
	cantidad, err := strconv.Atoi(parts[1])
	if err != nil {
		return client.LineItem{}, fmt.Errorf("invalid cantidad %q", parts[1])
	}
	return client.LineItem{ProductID: id, Cantidad: cantidad}, nil
}

func printBoard(s board.Snapshot) {
	fmt.Printf("\n=== %s ===\n", time.Now().Format("15:04:05"))
	printPartition("Pedidos solicitados", s.Requested)
	printPartition("Pendientes de retiro", s.PendingPickup)
	printPartition(fmt.Sprintf("Ventas del %s", s.SelectedDate), s.Finalized)
	if s.LastErr != nil {
		fmt.Printf("!! %s\n", errorMessage(s.LastErr))
	}
}

func printPartition(title string, sales []domain.Sale) {
	fmt.Printf("%s (%d)\n", title, len(sales))
	for _, sale := range sales {
		fmt.Printf("  #%-4d %s  %-13s %s  %s\n",
			sale.ID, sale.Date, paymentLabel(sale), saleTotal(sale), saleLines(sale))
	}
}

func paymentLabel(sale domain.Sale) string {
	label := sale.MedioPago
	if label == "" {
		label = domain.PaymentCash
	}
	if sale.Paid {
		return label + " ✓"
	}
	return label
}

func saleTotal(sale domain.Sale) string {
	total := decimal.Zero
	for _, line := range sale.Lines {
		total = total.Add(line.Precio.Mul(decimal.NewFromInt(int64(line.Cantidad))))
	}
	return "$" + total.StringFixed(2)
}

func saleLines(sale domain.Sale) string {
	parts := make([]string, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		parts = append(parts, fmt.Sprintf("%dx %s", line.Cantidad, line.Product.Nombre))
	}
	return strings.Join(parts, ", ")
}

func errorMessage(err error) string {
	var apiErr *client.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	return err.Error()
}

func envOr(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
