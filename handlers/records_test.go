package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/types"
)

func (s *E2ETestSuite) TestCreateAndListRecords() {
	token := s.register("owner", "owner@example.com", "ownerpass")
	s.Empty(s.listRecords(token))

	id := s.createRecord(token, map[string]interface{}{
		"type": "expense", "amount": 1200, "category": "餐饮", "date": "2023-11-05", "note": " lunch ",
	})

	records := s.listRecords(token)
	s.Require().Len(records, 1)
	rec := records[0]
	s.Equal(float64(id), rec["id"])
	s.Equal("expense", rec["type"])
	s.Equal(float64(1200), rec["amount"])
	s.Equal("餐饮", rec["category"])
	s.Equal("2023-11-05", rec["date"])
	s.Equal("lunch", rec["note"])
	s.Equal(float64(1), rec["userId"])
	s.NotEmpty(rec["createdAt"])
}

func (s *E2ETestSuite) TestCreateRecordAcceptsNumericString() {
	token := s.register("owner", "owner@example.com", "ownerpass")

	s.createRecord(token, map[string]interface{}{
		"type": "income", "amount": "5000.50", "category": "工资", "date": "2023-11-01",
	})
	records := s.listRecords(token)
	s.Require().Len(records, 1)
	s.Equal(5000.5, records[0]["amount"])
}

func (s *E2ETestSuite) TestCreateRecordValidation() {
	token := s.register("owner", "owner@example.com", "ownerpass")

	valid := func() map[string]interface{} {
		return map[string]interface{}{"type": "expense", "amount": 10, "category": "food", "date": "2023-11-05"}
	}
	cases := []struct {
		name  string
		field string
		value interface{}
	}{
		{"unknown type", "type", "transfer"},
		{"missing type", "type", nil},
		{"zero amount", "amount", 0},
		{"negative amount", "amount", -5},
		{"text amount", "amount", "lots"},
		{"missing amount", "amount", nil},
		{"blank category", "category", "   "},
		{"bad date", "date", "2023-02-30"},
		{"wrong date format", "date", "05/11/2023"},
	}
	for _, tc := range cases {
		body := valid()
		if tc.value == nil {
			delete(body, tc.field)
		} else {
			body[tc.field] = tc.value
		}
		res := s.request(http.MethodPost, "/records", token, body)
		s.Equal(http.StatusBadRequest, res.status, tc.name)
		s.Equal(types.ErrorCodeValidation, res.errorCode(), tc.name)
	}

	s.Equal(http.StatusBadRequest, s.request(http.MethodPost, "/records", token, "[1]").status)
	s.Empty(s.listRecords(token))
}

func (s *E2ETestSuite) TestRecordsNewestFirst() {
	token := s.register("owner", "owner@example.com", "ownerpass")

	older := s.createRecord(token, map[string]interface{}{"type": "income", "amount": 5000, "category": "工资", "date": "2023-11-01"})
	s.advance(time.Minute)
	sameDayFirst := s.createRecord(token, map[string]interface{}{"type": "expense", "amount": 1200, "category": "餐饮", "date": "2023-11-05"})
	s.advance(time.Minute)
	sameDaySecond := s.createRecord(token, map[string]interface{}{"type": "expense", "amount": 30, "category": "交通", "date": "2023-11-05"})

	records := s.listRecords(token)
	s.Require().Len(records, 3)
	s.Equal(float64(sameDaySecond), records[0]["id"])
	s.Equal(float64(sameDayFirst), records[1]["id"])
	s.Equal(float64(older), records[2]["id"])
}

func (s *E2ETestSuite) TestRecordsScopedToOwner() {
	alice := s.register("alice", "alice@example.com", "alicepass")
	bob := s.register("bob", "bob@example.com", "bobpass1")

	id := s.createRecord(alice, map[string]interface{}{"type": "expense", "amount": 10, "category": "food", "date": "2023-11-05"})

	s.Empty(s.listRecords(bob))
	res := s.request(http.MethodDelete, "/records/"+strconv.Itoa(id), bob, nil)
	s.Equal(http.StatusNotFound, res.status)
	s.Len(s.listRecords(alice), 1)

	res = s.request(http.MethodDelete, "/records/"+strconv.Itoa(id), alice, nil)
	s.Equal(http.StatusOK, res.status)
	s.Empty(s.listRecords(alice))

	res = s.request(http.MethodDelete, "/records/"+strconv.Itoa(id), alice, nil)
	s.Equal(http.StatusNotFound, res.status)
}

func (s *E2ETestSuite) TestDeleteRecordInvalidID() {
	token := s.register("owner", "owner@example.com", "ownerpass")

	for _, id := range []string{"abc", "0", "-3"} {
		res := s.request(http.MethodDelete, "/records/"+id, token, nil)
		s.Equal(http.StatusBadRequest, res.status, id)
	}
}

func (s *E2ETestSuite) TestDeleteAllRecords() {
	alice := s.register("alice", "alice@example.com", "alicepass")
	bob := s.register("bob", "bob@example.com", "bobpass1")

	for i := 0; i < 3; i++ {
		s.createRecord(alice, map[string]interface{}{"type": "expense", "amount": i + 1, "category": "food", "date": "2023-11-05"})
	}
	s.createRecord(bob, map[string]interface{}{"type": "income", "amount": 1, "category": "gift", "date": "2023-11-05"})

	res := s.request(http.MethodDelete, "/records", alice, nil)
	s.Require().Equal(http.StatusOK, res.status)
	s.Equal(float64(3), res.data()["deletedCount"])
	s.Empty(s.listRecords(alice))
	s.Len(s.listRecords(bob), 1)

	res = s.request(http.MethodDelete, "/records", alice, nil)
	s.Equal(float64(0), res.data()["deletedCount"])
}

func (s *E2ETestSuite) TestRecordsForDeletedAccount() {
	token := s.register("owner", "owner@example.com", "ownerpass")
	// a valid session whose user no longer exists
	s.TearDownTest()
	s.SetupTest()

	res := s.request(http.MethodPost, "/records", token, map[string]interface{}{"type": "expense", "amount": 1, "category": "food", "date": "2023-11-05"})
	s.Equal(http.StatusNotFound, res.status)
	s.Equal(http.StatusNotFound, s.request(http.MethodGet, "/user", token, nil).status)
}
