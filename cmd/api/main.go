// cmd/api/main.go
package main

import (
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
)

func main() {
	certificationServiceURL, _ := url.Parse(getEnv("CERTIFICATION_SERVICE_URL", "http://localhost:8081"))
	verificationServiceURL, _ := url.Parse(getEnv("VERIFICATION_SERVICE_URL", "http://localhost:8082"))

	certificationProxy := httputil.NewSingleHostReverseProxy(certificationServiceURL)
	verificationProxy := httputil.NewSingleHostReverseProxy(verificationServiceURL)

	http.Handle("/api/v1/certification/", http.StripPrefix("/api/v1/certification", certificationProxy))
	http.Handle("/api/v1/verification/", http.StripPrefix("/api/v1/verification", verificationProxy))

	port := getEnv("PORT", "8080")
	log.Printf("API Gateway listening on port %s", port)
	log.Fatal(http.ListenAndServe(":"+port, nil))
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
