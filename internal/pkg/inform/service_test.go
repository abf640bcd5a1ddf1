package inform

import (
	"testing"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/voxanalyze/voxy/internal/pkg/persistence"
	"github.com/voxanalyze/voxy/internal/pkg/test"
	"github.com/voxanalyze/voxy/internal/pkg/test/mocks"
)

type senderMock struct{ mock.Mock }

func (m *senderMock) Send(mail *email.Email) error {
	args := m.Called(mail)
	return args.Error(0)
}

var (
	dbMock   *mocks.DB
	sendMock *senderMock
)

func initTestData(t *testing.T) *ServiceData {
	t.Helper()
	dbMock = &mocks.DB{}
	sendMock = &senderMock{}
	maker, err := NewCallEmailMaker("voxy@local", "admin@local")
	require.Nil(t, err)
	return &ServiceData{DB: dbMock, EmailSender: sendMock, EmailMaker: maker,
		WorkerCount: 1, Testing: true}
}

func testCall() *persistence.Call {
	return &persistence.Call{ID: 7, Filename: "a.wav", Sentiment: "Positive",
		Tags: []string{"Support"}, Summary: persistence.Summary{Overview: "A short call."}}
}

func TestHandleInform(t *testing.T) {
	data := initTestData(t)
	dbMock.On("LoadCall", mock.Anything, int64(7)).Return(testCall(), nil)
	sendMock.On("Send", mock.Anything).Return(nil)
	dbMock.On("MarkEmailSent", mock.Anything, int64(7)).Return(nil)

	err := handleInform(test.Ctx(t), &amessages.InformMessage{
		QueueMessage: amessages.QueueMessage{ID: "7"}}, data)
	require.Nil(t, err)

	mail := sendMock.Calls[0].Arguments[0].(*email.Email)
	assert.Equal(t, "New Call Analyzed: a.wav", mail.Subject)
	assert.Equal(t, []string{"admin@local"}, mail.To)
	assert.Contains(t, string(mail.Text), "Sentiment: Positive")
	assert.Contains(t, string(mail.Text), "A short call.")
	assert.Contains(t, string(mail.HTML), "Support")
	dbMock.AssertExpectations(t)
}

func TestHandleInform_AlreadySent(t *testing.T) {
	data := initTestData(t)
	call := testCall()
	call.EmailSent = true
	dbMock.On("LoadCall", mock.Anything, int64(7)).Return(call, nil)

	err := handleInform(test.Ctx(t), &amessages.InformMessage{
		QueueMessage: amessages.QueueMessage{ID: "7"}}, data)
	require.Nil(t, err)
	sendMock.AssertNotCalled(t, "Send", mock.Anything)
}

func TestHandleInform_WrongID(t *testing.T) {
	data := initTestData(t)
	err := handleInform(test.Ctx(t), &amessages.InformMessage{
		QueueMessage: amessages.QueueMessage{ID: "olia"}}, data)
	assert.NotNil(t, err)
}

func TestHandleInform_SendFails(t *testing.T) {
	data := initTestData(t)
	dbMock.On("LoadCall", mock.Anything, int64(7)).Return(testCall(), nil)
	sendMock.On("Send", mock.Anything).Return(assert.AnError)

	err := handleInform(test.Ctx(t), &amessages.InformMessage{
		QueueMessage: amessages.QueueMessage{ID: "7"}}, data)
	assert.NotNil(t, err)
	dbMock.AssertNotCalled(t, "MarkEmailSent", mock.Anything, mock.Anything)
}

func TestMaker_Fail(t *testing.T) {
	_, err := NewCallEmailMaker("", "to")
	assert.NotNil(t, err)
	_, err = NewCallEmailMaker("from", "")
	assert.NotNil(t, err)
	maker, err := NewCallEmailMaker("from", "to")
	require.Nil(t, err)
	_, err = maker.Make(nil)
	assert.NotNil(t, err)
}

func TestMaker_NoTags(t *testing.T) {
	maker, err := NewCallEmailMaker("from", "to")
	require.Nil(t, err)
	call := testCall()
	call.Tags = nil
	mail, err := maker.Make(call)
	require.Nil(t, err)
	assert.Contains(t, string(mail.Text), "Tags: None")
}

func TestValidate(t *testing.T) {
	data := initTestData(t)
	assert.NotNil(t, validate(data)) // no gue client
}
