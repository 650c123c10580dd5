package outlook

// User is the subset of the Graph /me resource used for linking.
type User struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Address returns the mailbox address, preferring mail over the UPN.
func (u *User) Address() string {
	if u.Mail != "" {
		return u.Mail
	}
	return u.UserPrincipalName
}

type emailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Message is the subset of a Graph message resource the adapter maps.
type Message struct {
	ID               string      `json:"id"`
	Subject          string      `json:"subject"`
	From             *recipient  `json:"from"`
	ToRecipients     []recipient `json:"toRecipients"`
	Body             itemBody    `json:"body"`
	ReceivedDateTime string      `json:"receivedDateTime"`
	IsRead           bool        `json:"isRead"`
}

type messagePage struct {
	Value    []Message `json:"value"`
	NextLink string    `json:"@odata.nextLink"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
