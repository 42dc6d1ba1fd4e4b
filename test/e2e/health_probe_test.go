//go:build e2e
// +build e2e

// Copyright 2025 Lumina Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package e2e

import (
	"fmt"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func getBody(url string) (int, string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(body), nil
}

var _ = Describe("Health Probes", Ordered, func() {
	Context("Liveness Probe (/healthz)", func() {
		It("should return 200 OK", func() {
			By("checking the /healthz endpoint")
			Eventually(func(g Gomega) {
				status, body, err := getBody(fmt.Sprintf("http://127.0.0.1%s/healthz", healthBindAddress))
				g.Expect(err).NotTo(HaveOccurred(), "Failed to query /healthz endpoint")
				g.Expect(status).To(Equal(http.StatusOK))
				g.Expect(body).To(ContainSubstring("ok"))
			}, 30*time.Second, 2*time.Second).Should(Succeed())
		})
	})

	Context("Readiness Probe (/readyz)", func() {
		It("should return 200 OK once the store and provider are reachable", func() {
			By("checking the /readyz endpoint")
			Eventually(func(g Gomega) {
				status, body, err := getBody(fmt.Sprintf("http://127.0.0.1%s/readyz", healthBindAddress))
				g.Expect(err).NotTo(HaveOccurred(), "Failed to query /readyz endpoint")
				g.Expect(status).To(Equal(http.StatusOK))
				g.Expect(body).To(ContainSubstring("ok"))
			}, 30*time.Second, 2*time.Second).Should(Succeed())
		})
	})

	Context("Metrics endpoint", func() {
		It("should expose the reconciler_running gauge set to 1", func() {
			By("scraping the metrics endpoint")
			Eventually(func(g Gomega) {
				status, body, err := getBody(fmt.Sprintf("http://127.0.0.1%s/metrics", metricsBindAddress))
				g.Expect(err).NotTo(HaveOccurred(), "Failed to scrape /metrics endpoint")
				g.Expect(status).To(Equal(http.StatusOK))
				g.Expect(body).To(ContainSubstring("spotmanagerd_reconciler_running 1"))
			}, 30*time.Second, 2*time.Second).Should(Succeed())
		})
	})
})
