package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"

	"ethed-api/internal/siwe"
)

// devConfig es lo mínimo que necesita la herramienta; no exige base de datos.
type devConfig struct {
	PrivateKey string `env:"DEV_PRIVATE_KEY"`
	ChainID    int64  `env:"CHAIN_ID" envDefault:"11155111"`
	Domain     string `env:"SIWE_DOMAIN" envDefault:"localhost:8080"`
}

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "base URL de la API")
	nonce := flag.String("nonce", "", "nonce a firmar; si se omite se pide a la API")
	submit := flag.Bool("submit", true, "enviar la firma a /auth/verify")
	flag.Parse()

	_ = godotenv.Load()

	var cfg devConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(err)
	}
	if cfg.PrivateKey == "" {
		fmt.Print("private key (hex): ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		cfg.PrivateKey = strings.TrimSpace(line)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		log.Fatalf("invalid private key: %v", err)
	}

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar, Timeout: 10 * time.Second}
	base := strings.TrimRight(*apiURL, "/")

	if *nonce == "" {
		*nonce, err = fetchNonce(client, base)
		if err != nil {
			log.Fatalf("fetch nonce: %v", err)
		}
	}

	msg := siwe.Message{
		Domain:    cfg.Domain,
		Address:   crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Statement: "Sign in to EthEd.",
		URI:       base,
		Version:   "1",
		ChainID:   cfg.ChainID,
		Nonce:     *nonce,
		IssuedAt:  time.Now().UTC(),
	}
	raw := msg.String()
	sig, err := siwe.Sign(raw, key)
	if err != nil {
		log.Fatalf("sign: %v", err)
	}

	fmt.Println("----- message -----")
	fmt.Println(raw)
	fmt.Println("----- signature -----")
	fmt.Println(sig)

	if !*submit {
		return
	}
	payload, _ := json.Marshal(map[string]string{"message": raw, "signature": sig})
	resp, err := client.Post(base+"/auth/verify", "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("verify: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("----- verify (%d) -----\n%s\n", resp.StatusCode, body)
}

func fetchNonce(client *http.Client, base string) (string, error) {
	resp, err := client.Get(base + "/auth/nonce")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var out struct {
		Nonce string `json:"nonce"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Nonce, nil
}
