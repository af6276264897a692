package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// 1x1 PNG
const pixel = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func main() {
	httpAddr := flag.String("http", "http://localhost:3001", "relay HTTP address")
	grpcAddr := flag.String("grpc", "", "relay gRPC health address, empty to skip")
	origin := flag.String("origin", "http://localhost:3000", "Origin header sent with requests")
	detect := flag.Bool("detect", false, "also send a 1x1 PNG to /weed-detection")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Тест 1: gRPC health
	if *grpcAddr != "" {
		fmt.Println("Test 1: gRPC health...")
		conn, err := grpc.NewClient(*grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			log.Fatalf("Failed to connect: %v", err)
		}
		defer conn.Close()

		resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "garden-relay"})
		if err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		fmt.Printf("gRPC status: %s\n", resp.Status)
	}

	client := resty.New().
		SetBaseURL(*httpAddr).
		SetHeader("Origin", *origin).
		SetTimeout(20 * time.Second)

	// Тест 2: HTTP health
	fmt.Println("\nTest 2: HTTP health...")
	resp, err := client.R().SetContext(ctx).Get("/health")
	if err != nil {
		log.Fatalf("GET /health failed: %v", err)
	}
	fmt.Printf("%d %s\n", resp.StatusCode(), resp.String())

	// Тест 3: адрес платформы
	fmt.Println("\nTest 3: API address...")
	resp, err = client.R().SetContext(ctx).Get("/api-address")
	if err != nil {
		log.Fatalf("GET /api-address failed: %v", err)
	}
	fmt.Printf("%d %s\n", resp.StatusCode(), resp.String())

	// Тест 4: пустой кадр должен дать 400
	fmt.Println("\nTest 4: empty detection request...")
	resp, err = client.R().SetContext(ctx).SetBody(map[string]string{}).Post("/weed-detection")
	if err != nil {
		log.Fatalf("POST /weed-detection failed: %v", err)
	}
	fmt.Printf("%d %s\n", resp.StatusCode(), resp.String())
	if resp.StatusCode() != 400 {
		log.Fatalf("expected 400, got %d", resp.StatusCode())
	}

	if *detect {
		fmt.Println("\nTest 5: detection...")
		resp, err = client.R().SetContext(ctx).SetBody(map[string]string{"image": pixel}).Post("/weed-detection")
		if err != nil {
			log.Fatalf("POST /weed-detection failed: %v", err)
		}
		fmt.Printf("%d %s\n", resp.StatusCode(), resp.String())
	}

	fmt.Println("\n✅ Smoke checks completed")
}
