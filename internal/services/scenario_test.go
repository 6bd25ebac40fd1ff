package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"greendrake/realty/internal/models"
	"greendrake/realty/internal/utils"
)

// ReservationScenarioSuite walks one property through competing inquiries, a deposit,
// a lapsed hold and a final sale.
type ReservationScenarioSuite struct {
	suite.Suite
	env   *testEnv
	ctx   context.Context
	agent utils.SixID
	admin utils.SixID
	p     *models.Property
	i1    *models.Inquiry
	i2    *models.Inquiry
}

func (s *ReservationScenarioSuite) SetupTest() {
	s.env = newTestEnv(s.T())
	s.ctx = context.Background()
	s.agent = utils.NewSixID()
	s.admin = utils.NewSixID()
	s.p = s.env.createProperty(s.T())
	s.i1 = s.env.createInquiry(s.T(), s.p.ID, "i1@x.com", "09170000001")
	s.i2 = s.env.createInquiry(s.T(), s.p.ID, "i2@x.com", "09170000002")

	_, err := s.env.inquiries.AssignInquiry(s.ctx, s.i1.ID, s.agent, s.admin)
	s.Require().NoError(err)
}

func (s *ReservationScenarioSuite) move(id utils.SixID, status models.InquiryStatus) *models.Inquiry {
	inq, err := s.env.inquiries.UpdateInquiryStatus(s.ctx, id, StatusChange{Status: status, ActorID: s.agent})
	s.Require().NoError(err)
	return inq
}

func (s *ReservationScenarioSuite) TestDepositThenReserve() {
	s.move(s.i1.ID, models.InquiryDepositPaid)
	i1 := s.move(s.i1.ID, models.InquiryReserved)

	p := s.env.mustGetProperty(s.T(), s.p.ID)
	s.Equal(models.PropertyStatusReserved, p.Status)
	s.Require().NotNil(p.ReservedByInquiryID)
	s.Equal(s.i1.ID, *p.ReservedByInquiryID)
	s.Equal(models.InquiryCancelled, s.env.mustGetInquiry(s.T(), s.i2.ID).Status)
	s.True(i1.CommissionLocked)

	_, err := s.env.inquiries.ReassignInquiry(s.ctx, s.i1.ID, utils.NewSixID(), s.admin)
	s.ErrorIs(err, ErrCommissionLocked)
}

func (s *ReservationScenarioSuite) TestLapsedHoldReopensMarket() {
	s.move(s.i1.ID, models.InquiryDepositPaid)
	s.move(s.i1.ID, models.InquiryReserved)

	s.env.clock.Advance(30*24*time.Hour + time.Second)
	count, err := s.env.expiry.ExpireReservations(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
	s.Equal(models.InquiryExpired, s.env.mustGetInquiry(s.T(), s.i1.ID).Status)
	s.True(s.env.mustGetInquiry(s.T(), s.i1.ID).CommissionLocked)

	// The client whose inquiry was cancelled by the win can enquire again and buy outright.
	i3, err := s.env.inquiries.CreateInquiry(s.ctx, s.p.ID, s.i2.Client, "Still interested")
	s.Require().NoError(err)
	s.move(i3.ID, models.InquirySold)

	p := s.env.mustGetProperty(s.T(), s.p.ID)
	s.Equal(models.PropertyStatusSold, p.Status)
	s.Equal(i3.ID, *p.ReservedByInquiryID)
	s.Nil(p.ReservationExpiry)

	count, err = s.env.expiry.ExpireReservations(s.ctx)
	s.Require().NoError(err)
	s.Zero(count)
}

func TestReservationScenarioSuite(t *testing.T) {
	suite.Run(t, new(ReservationScenarioSuite))
}
