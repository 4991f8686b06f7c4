package circuitbreaker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/service-gateway/internal/circuitbreaker"
)

var errUpstream = errors.New("upstream down")

func fail() error    { return errUpstream }
func succeed() error { return nil }

var _ = Describe("CircuitBreaker", func() {
	var cb *circuitbreaker.CircuitBreaker

	trip := func(n int) {
		for i := 0; i < n; i++ {
			Expect(cb.Execute(fail)).To(MatchError(errUpstream))
		}
	}

	Describe("NewCircuitBreaker", func() {
		It("should create a circuit breaker in closed state", func() {
			cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultSettings())
			Expect(cb).NotTo(BeNil())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should fall back to defaults for zero settings", func() {
			cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{})
			settings := cb.Settings()
			Expect(settings.FailureThreshold).To(Equal(5))
			Expect(settings.ResetTimeout).To(Equal(10 * time.Second))
			Expect(settings.HalfOpenMaxRequests).To(Equal(3))
			Expect(settings.IsFailure).NotTo(BeNil())
		})
	})

	Describe("Outcome classification", func() {
		cancelled := func() error {
			return fmt.Errorf("call aborted: %w", context.Canceled)
		}

		BeforeEach(func() {
			cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
				FailureThreshold:    2,
				ResetTimeout:        50 * time.Millisecond,
				HalfOpenMaxRequests: 1,
			})
		})

		It("should not count cancelled calls as failures", func() {
			for i := 0; i < 5; i++ {
				Expect(cb.Execute(cancelled)).To(MatchError(context.Canceled))
			}
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Counts().FailureCount).To(BeZero())
		})

		It("should not reset the failure count on a cancelled call", func() {
			Expect(cb.Execute(fail)).To(HaveOccurred())
			Expect(cb.Execute(cancelled)).To(HaveOccurred())
			Expect(cb.Counts().FailureCount).To(Equal(1))

			Expect(cb.Execute(fail)).To(HaveOccurred())
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should free the trial slot when a HALF_OPEN trial is cancelled", func() {
			trip(2)
			time.Sleep(80 * time.Millisecond)

			Expect(cb.Execute(cancelled)).To(HaveOccurred())
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))

			Expect(cb.Execute(succeed)).To(Succeed())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should use a custom classifier", func() {
			errIgnored := errors.New("bad input")
			cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
				FailureThreshold: 1,
				IsFailure: func(err error) bool {
					return !errors.Is(err, errIgnored)
				},
			})

			Expect(cb.Execute(func() error { return errIgnored })).To(MatchError(errIgnored))
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))

			Expect(cb.Execute(fail)).To(HaveOccurred())
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})
	})

	Describe("State transitions", func() {
		BeforeEach(func() {
			cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
				FailureThreshold:    3,
				ResetTimeout:        100 * time.Millisecond,
				HalfOpenMaxRequests: 2,
			})
		})

		Context("when in CLOSED state", func() {
			It("should run the operation and return its result", func() {
				calls := 0
				err := cb.Execute(func() error {
					calls++
					return nil
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(calls).To(Equal(1))
			})

			It("should pass the original error through", func() {
				err := cb.Execute(fail)
				Expect(err).To(BeIdenticalTo(errUpstream))
			})

			It("should remain closed after failures below threshold", func() {
				trip(2)
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
				Expect(cb.Counts().FailureCount).To(Equal(2))
			})

			It("should transition to OPEN after reaching failure threshold", func() {
				trip(3)
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})

			It("should reset the failure count on success", func() {
				trip(2)
				Expect(cb.Execute(succeed)).To(Succeed())
				Expect(cb.Counts().FailureCount).To(Equal(0))

				trip(2)
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			})
		})

		Context("when in OPEN state", func() {
			BeforeEach(func() {
				trip(3)
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})

			It("should reject without invoking the operation", func() {
				var calls int32
				for i := 0; i < 5; i++ {
					err := cb.Execute(func() error {
						atomic.AddInt32(&calls, 1)
						return nil
					})
					Expect(err).To(MatchError(circuitbreaker.ErrCircuitOpen))
				}
				Expect(atomic.LoadInt32(&calls)).To(BeZero())
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})

			It("should not count rejections as failures", func() {
				before := cb.Counts()
				Expect(cb.Execute(succeed)).To(MatchError(circuitbreaker.ErrCircuitOpen))
				Expect(cb.Counts()).To(Equal(before))
			})

			It("should move to HALF_OPEN and invoke the operation after reset timeout", func() {
				time.Sleep(150 * time.Millisecond)

				var observed circuitbreaker.State
				calls := 0
				err := cb.Execute(func() error {
					calls++
					observed = cb.State()
					return nil
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(calls).To(Equal(1))
				Expect(observed).To(Equal(circuitbreaker.StateHalfOpen))
			})
		})

		Context("when in HALF_OPEN state", func() {
			BeforeEach(func() {
				trip(3)
				time.Sleep(150 * time.Millisecond)
			})

			It("should transition back to OPEN on a single failure", func() {
				Expect(cb.Execute(fail)).To(MatchError(errUpstream))
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})

			It("should stay HALF_OPEN until enough successes", func() {
				Expect(cb.Execute(succeed)).To(Succeed())
				Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
				Expect(cb.Counts().SuccessCount).To(Equal(1))
			})

			It("should close after HalfOpenMaxRequests consecutive successes with cleared counters", func() {
				Expect(cb.Execute(succeed)).To(Succeed())
				Expect(cb.Execute(succeed)).To(Succeed())

				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
				counts := cb.Counts()
				Expect(counts.FailureCount).To(Equal(0))
				Expect(counts.SuccessCount).To(Equal(0))
			})

			It("should reopen after a failure that follows a success", func() {
				Expect(cb.Execute(succeed)).To(Succeed())
				Expect(cb.Execute(fail)).To(MatchError(errUpstream))
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})
		})
	})

	Describe("Half-open admission", func() {
		BeforeEach(func() {
			cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
				FailureThreshold:    1,
				ResetTimeout:        50 * time.Millisecond,
				HalfOpenMaxRequests: 2,
			})
			Expect(cb.Execute(fail)).To(HaveOccurred())
			time.Sleep(80 * time.Millisecond)
		})

		It("should cap concurrent trial calls", func() {
			release := make(chan struct{})
			started := make(chan struct{}, 2)

			var wg sync.WaitGroup
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					err := cb.Execute(func() error {
						started <- struct{}{}
						<-release
						return nil
					})
					Expect(err).NotTo(HaveOccurred())
				}()
			}

			Eventually(started).Should(Receive())
			Eventually(started).Should(Receive())

			calls := 0
			err := cb.Execute(func() error {
				calls++
				return nil
			})
			Expect(err).To(MatchError(circuitbreaker.ErrTooManyRequests))
			Expect(calls).To(BeZero())

			close(release)
			wg.Wait()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("Listeners", func() {
		var (
			mutex  sync.Mutex
			events []circuitbreaker.Event
		)

		BeforeEach(func() {
			events = nil
			cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
				FailureThreshold:    2,
				ResetTimeout:        50 * time.Millisecond,
				HalfOpenMaxRequests: 1,
			})
			cb.Subscribe(circuitbreaker.ListenerFunc(func(e circuitbreaker.Event, _ circuitbreaker.State) {
				mutex.Lock()
				defer mutex.Unlock()
				events = append(events, e)
			}))
		})

		It("should report every transition and outcome in order", func() {
			Expect(cb.Execute(fail)).To(HaveOccurred())
			Expect(cb.Execute(fail)).To(HaveOccurred())
			time.Sleep(80 * time.Millisecond)
			Expect(cb.Execute(succeed)).To(Succeed())

			mutex.Lock()
			defer mutex.Unlock()
			Expect(events).To(Equal([]circuitbreaker.Event{
				circuitbreaker.EventFailure,
				circuitbreaker.EventOpen,
				circuitbreaker.EventFailure,
				circuitbreaker.EventHalfOpen,
				circuitbreaker.EventClosed,
				circuitbreaker.EventSuccess,
			}))
		})

		It("should pass the state entered by a transition", func() {
			var opened circuitbreaker.State
			cb.Subscribe(circuitbreaker.ListenerFunc(func(e circuitbreaker.Event, s circuitbreaker.State) {
				if e == circuitbreaker.EventOpen {
					opened = s
				}
			}))
			Expect(cb.Execute(fail)).To(HaveOccurred())
			Expect(cb.Execute(fail)).To(HaveOccurred())
			Expect(opened).To(Equal(circuitbreaker.StateOpen))
		})
	})

	Describe("Concurrent access", func() {
		It("should keep a valid state under mixed outcomes", func() {
			cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultSettings())

			const goroutines = 50
			var wg sync.WaitGroup
			wg.Add(goroutines * 2)

			for i := 0; i < goroutines; i++ {
				go func() {
					defer wg.Done()
					_ = cb.Execute(fail)
				}()
				go func() {
					defer wg.Done()
					_ = cb.Execute(succeed)
				}()
			}
			wg.Wait()

			Expect(cb.State()).To(BeElementOf(
				circuitbreaker.StateClosed,
				circuitbreaker.StateOpen,
				circuitbreaker.StateHalfOpen,
			))
		})
	})

	Describe("State.String", func() {
		It("should return correct string representation", func() {
			Expect(circuitbreaker.StateClosed.String()).To(Equal("CLOSED"))
			Expect(circuitbreaker.StateOpen.String()).To(Equal("OPEN"))
			Expect(circuitbreaker.StateHalfOpen.String()).To(Equal("HALF_OPEN"))
		})

		It("should marshal as its label", func() {
			text, err := circuitbreaker.StateOpen.MarshalText()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(text)).To(Equal("OPEN"))
		})
	})
})
