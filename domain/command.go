package domain

type CreateRoomCommand struct {
	Name      string   `validate:"max=64"`
	MemberIDs []string `validate:"min=1,dive,required"`
}

type PostMessageCommand struct {
	Room      RoomID `validate:"required"`
	AuthorID  string `validate:"required"`
	Text      string `validate:"required"`
	ClientRef string `validate:"omitempty,startswith=temp-"`
}
